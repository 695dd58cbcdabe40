// Package config provides configuration loading for brandquest.
package config

// Config is the root configuration.
type Config struct {
	Database   string     `json:"database"   mapstructure:"database"`
	RecordID   string     `json:"record_id"  mapstructure:"record_id"`
	Catalog    string     `json:"catalog"    mapstructure:"catalog"`
	Remote     Remote     `json:"remote"     mapstructure:"remote"`
	Generation Generation `json:"generation" mapstructure:"generation"`
}

// Remote selects the HTTP record store. An empty URL keeps records in the
// local database.
type Remote struct {
	URL   string `json:"url,omitempty"   mapstructure:"url"`
	Token string `json:"token,omitempty" mapstructure:"token"`
}

// Generation selects the stage invoker.
type Generation struct {
	Provider string `json:"provider"          mapstructure:"provider"`
	Model    string `json:"model,omitempty"   mapstructure:"model"`
	APIKey   string `json:"api_key,omitempty" mapstructure:"api_key"`
}

// UsesRemote reports whether records live behind the HTTP store.
func (c Config) UsesRemote() bool {
	return c.Remote.URL != ""
}
