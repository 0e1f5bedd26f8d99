package config

// Overrides carries command-line settings that take precedence over
// file contents. A nil field means the flag was not given; presence is
// the marker, never a sentinel value. Overrides are captured once at
// startup and reapplied after every reload so flags always win.
type Overrides struct {
	Interface        *string
	Verbose          *int
	LogFile          *string
	PinMaps          *bool
	UpdateTime       *int
	NoStats          *bool
	StatsPerSecond   *bool
	StdoutUpdateTime *int
	Time             *int
}

// Apply returns cfg with every present override substituted.
func (o Overrides) Apply(cfg Runtime) Runtime {
	if o.Interface != nil {
		cfg.Interface = *o.Interface
	}
	if o.Verbose != nil {
		cfg.Verbose = *o.Verbose
	}
	if o.LogFile != nil {
		cfg.LogFile = *o.LogFile
	}
	if o.PinMaps != nil {
		cfg.PinMaps = *o.PinMaps
	}
	if o.UpdateTime != nil {
		cfg.UpdateTime = *o.UpdateTime
	}
	if o.NoStats != nil {
		cfg.NoStats = *o.NoStats
	}
	if o.StatsPerSecond != nil {
		cfg.StatsPerSecond = *o.StatsPerSecond
	}
	if o.StdoutUpdateTime != nil {
		cfg.StdoutUpdateTime = *o.StdoutUpdateTime
	}
	if o.Time != nil {
		cfg.Time = *o.Time
	}
	return cfg
}
