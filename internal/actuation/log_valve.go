package actuation

// LogValve is a dry-run valve for bench testing. It only logs.
type LogValve struct {
	logger Logger
}

// NewLogValve returns a LogValve writing to logger.
func NewLogValve(logger Logger) *LogValve {
	return &LogValve{logger: logger}
}

func (v *LogValve) Start(zone, minutes int) error {
	v.logger.Info("valve open (dry run)", "zone", zone, "minutes", minutes)
	return nil
}

func (v *LogValve) Stop(zone int) error {
	v.logger.Info("valve close (dry run)", "zone", zone)
	return nil
}

func (v *LogValve) PumpOff() error {
	v.logger.Info("pump off (dry run)")
	return nil
}
