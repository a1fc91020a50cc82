// Package logging provides structured logging with OpenTelemetry integration.
//
// The Logger wraps zap with context-aware methods that attach trace, request
// and conversation correlation fields, a Trace level below Debug, optional
// OTEL output through the otelzap bridge, level-aware sampling and a
// redacting encoder that masks credentials and personal profile fields
// (national id, date of birth) before they reach stdout.
//
//	logger, err := logging.NewLogger(logging.NewDefaultConfig(), nil)
//	if err != nil {
//	    return err
//	}
//	defer logger.Sync()
//
//	ctx = logging.WithConversationID(ctx, "c_123")
//	logger.Info(ctx, "run finished", zap.Int("steps", 4))
package logging
