package config

// InitConfig writes a sample configuration file to path, pre-filled with
// defaultConfig's values, for `gatewayd init` to hand an operator a
// starting point to edit.
func InitConfig(path string) error {
	return SaveConfig(defaultConfig(), path)
}
