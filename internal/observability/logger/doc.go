// Package logger provides a singleton Zap logger with context-based scoping.
//
// # Design Decisions
//
//   - Singleton: Una sola instancia global inicializada con Init().
//   - Context Scoping: Cada request tiene su propio logger "scoped" con
//     request_id y service_id sin crear un nuevo core.
//   - Environments: "dev" usa consola con colores, "prod" usa JSON.
//   - Secrets: token y sign se loguean siempre enmascarados (ver Token).
//
// # Usage
//
// Inicialización (una vez en main.go):
//
//	logger.Init(logger.Config{Env: cfg.App.Env, Level: cfg.Log.Level, ServiceName: "wsaa"})
//	defer logger.Sync()
//
// En handlers/broker (con contexto):
//
//	log := logger.From(ctx)
//	log.Info("ticket renewed", logger.ServiceID(svc), logger.Token("token", t.Token))
package logger
