package ticketstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dropDatabas3/wsaa/internal/observability/logger"
	"github.com/dropDatabas3/wsaa/internal/wsaa"
	"github.com/fxamacker/cbor/v2"
)

// record es la forma serializada de un ticket en los backends externos.
// Los tiempos viajan como unix nanos para no depender de tags CBOR de fecha.
type record struct {
	Token          string `cbor:"1,keyasint"`
	Sign           string `cbor:"2,keyasint"`
	GeneratedAt    int64  `cbor:"3,keyasint,omitempty"`
	ExpiresAt      int64  `cbor:"4,keyasint"`
	Source         string `cbor:"5,keyasint,omitempty"`
	Destination    string `cbor:"6,keyasint,omitempty"`
	UniqueID       uint64 `cbor:"7,keyasint,omitempty"`
	StoreExpiresAt int64  `cbor:"8,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("ticketstore: cbor encoder: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("ticketstore: cbor decoder: " + err.Error())
	}
}

func encode(t *wsaa.AccessTicket, storeExpiresAt time.Time) ([]byte, error) {
	return encMode.Marshal(record{
		Token:          t.Token,
		Sign:           t.Sign,
		GeneratedAt:    toNanos(t.GeneratedAt),
		ExpiresAt:      toNanos(t.ExpiresAt),
		Source:         t.Source,
		Destination:    t.Destination,
		UniqueID:       t.UniqueID,
		StoreExpiresAt: toNanos(storeExpiresAt),
	})
}

func decode(b []byte) (*wsaa.AccessTicket, time.Time, error) {
	var r record
	if err := decMode.Unmarshal(b, &r); err != nil {
		return nil, time.Time{}, fmt.Errorf("ticketstore: decode: %w", err)
	}
	if r.Token == "" || r.ExpiresAt == 0 {
		return nil, time.Time{}, fmt.Errorf("ticketstore: decode: incomplete record")
	}
	return &wsaa.AccessTicket{
		Token:       r.Token,
		Sign:        r.Sign,
		GeneratedAt: fromNanos(r.GeneratedAt),
		ExpiresAt:   fromNanos(r.ExpiresAt),
		Source:      r.Source,
		Destination: r.Destination,
		UniqueID:    r.UniqueID,
	}, fromNanos(r.StoreExpiresAt), nil
}

// corrupt registra un registro que no se pudo decodificar. Los backends lo
// tratan como miss y la próxima renovación lo pisa con Set.
func corrupt(ctx context.Context, driver, key string, err error) {
	logger.From(ctx).Warn("corrupt ticket record, treating as miss",
		logger.Layer("ticketstore"),
		logger.Driver(driver),
		logger.ServiceID(key),
		logger.Err(err),
	)
}

func toNanos(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromNanos(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
