package logger

import (
	"time"

	"github.com/dropDatabas3/wsaa/internal/util"
	"go.uber.org/zap"
)

// Field es un alias para no obligar a los callers a importar zap.
type Field = zap.Field

// Claves estables: los dashboards y alertas filtran por ellas.
const (
	keyServiceID = "service_id"
	keyEndpoint  = "endpoint"
	keyAlias     = "alias"
	keyUniqueID  = "unique_id"
	keyDriver    = "driver"
)

// ---- HTTP ----

func RequestID(v string) Field       { return zap.String("request_id", v) }
func Method(v string) Field          { return zap.String("method", v) }
func Path(v string) Field            { return zap.String("path", v) }
func Status(v int) Field             { return zap.Int("status", v) }
func Duration(v time.Duration) Field { return zap.Duration("duration", v) }
func Bytes(v int) Field              { return zap.Int("bytes", v) }
func ClientIP(v string) Field        { return zap.String("client_ip", v) }

// ---- WSAA ----

// ServiceID es el servicio de negocio (wsfe, wsmtxca...) del ticket.
func ServiceID(v string) Field { return zap.String(keyServiceID, v) }

// Endpoint es la URL del WSAA.
func Endpoint(v string) Field { return zap.String(keyEndpoint, v) }

// Alias del firmante dentro del keystore. La contraseña no tiene helper.
func Alias(v string) Field { return zap.String(keyAlias, v) }

// UniqueID del loginTicketRequest o de la respuesta.
func UniqueID(v uint64) Field { return zap.Uint64(keyUniqueID, v) }

// Driver del token store.
func Driver(v string) Field { return zap.String(keyDriver, v) }

// Token registra token o sign enmascarados; nunca el valor crudo.
func Token(key, v string) Field { return zap.String(key, util.MaskSecret(v)) }

// TTL con el que se guardó un ticket.
func TTL(v time.Duration) Field { return zap.Duration("ttl", v) }

// ---- Sistema ----

func Component(v string) Field { return zap.String("component", v) }
func Op(v string) Field        { return zap.String("op", v) }

// Layer: controller, service, broker, signer, client, store.
func Layer(v string) Field { return zap.String("layer", v) }
func Err(err error) Field  { return zap.Error(err) }

// ---- Genéricos ----

func Any(key string, v any) Field        { return zap.Any(key, v) }
func String(key, v string) Field         { return zap.String(key, v) }
func Int(key string, v int) Field        { return zap.Int(key, v) }
func Bool(key string, v bool) Field      { return zap.Bool(key, v) }
func Time(key string, v time.Time) Field { return zap.Time(key, v) }
