package domain

// InstrumentCache persists the last good ticker table between runs.
type InstrumentCache interface {
	SaveInstruments(instruments []Instrument) error
	LoadInstruments() ([]Instrument, error)
}

// SettingsStore persists small user settings.
type SettingsStore interface {
	SaveConfig(key, value string) error
	LoadConfig(key string) (string, bool, error)
}
