package logger

import (
	"time"
)

// Operation logs the start and outcome of one lifecycle call (save
// progress, resume, finalize) with its duration and shared fields.
type Operation struct {
	logger Logger
	name   string
	fields Fields
	start  time.Time
	now    func() time.Time
}

// StartOperation logs the start of an operation at debug level.
func StartOperation(name string, logger Logger, fields Fields) *Operation {
	if logger == nil {
		logger = GetGlobalLogger()
	}
	merged := Fields{"operation": name}
	for k, v := range fields {
		merged[k] = v
	}

	op := &Operation{
		logger: logger.WithFields(merged),
		name:   name,
		fields: merged,
		start:  time.Now(),
		now:    time.Now,
	}
	op.logger.Debug("operation started")
	return op
}

// With adds a field to every later log line of the operation.
func (o *Operation) With(key string, value interface{}) *Operation {
	o.fields[key] = value
	o.logger = o.logger.WithField(key, value)
	return o
}

// Elapsed returns the time since the operation started.
func (o *Operation) Elapsed() time.Duration {
	return o.now().Sub(o.start)
}

// Done logs the outcome: info on success, error otherwise.
func (o *Operation) Done(err error) {
	l := o.logger.WithField("duration", o.Elapsed().String())
	if err != nil {
		l.WithError(err).WithField("status", "error").Error("operation failed")
		return
	}
	l.WithField("status", "success").Info("operation completed")
}

// TimedOperation executes fn and logs its outcome.
func TimedOperation(name string, logger Logger, fn func() error) error {
	op := StartOperation(name, logger, nil)
	err := fn()
	op.Done(err)
	return err
}
