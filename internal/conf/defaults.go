package conf

import "github.com/spf13/viper"

// setDefaultConfig registers the default value for every setting so a bare
// environment still produces a runnable configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "hydrolabel")
	viper.SetDefault("main.log.enabled", false)
	viper.SetDefault("main.log.path", "hydrolabel.log")
	viper.SetDefault("main.log.maxsizemb", 100)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxagedays", 28)

	viper.SetDefault("server.host", "127.0.0.1")
	viper.SetDefault("server.port", 8050)

	// Directory scans have no depth limit beyond the fixed two-level
	// hierarchical lookahead; this caps runaway trees.
	viper.SetDefault("discovery.maxentries", 50000)
	viper.SetDefault("discovery.cachettlsec", 60)

	viper.SetDefault("labels.validatetaxonomy", false)
	viper.SetDefault("labels.defaultannotator", "anonymous")

	viper.SetDefault("media.probeaudio", true)
}
