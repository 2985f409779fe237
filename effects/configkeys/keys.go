package configkeys

const (
	delimiter = "."

	ConfigPrefix = "config"

	ConfigEffectPrefix = ConfigPrefix + delimiter + "effect"

	ConfigEffectLogPrefix            = ConfigEffectPrefix + delimiter + "log"
	ConfigEffectLogHandlerPrefix     = ConfigEffectLogPrefix + delimiter + "handler"
	ConfigEffectLogHandlerBufferSize = ConfigEffectLogHandlerPrefix + delimiter + "buffer_size"

	ConfigEffectConcurrencyPrefix            = ConfigEffectPrefix + delimiter + "concurrency"
	ConfigEffectConcurrencyHandlerPrefix     = ConfigEffectConcurrencyPrefix + delimiter + "handler"
	ConfigEffectConcurrencyHandlerBufferSize = ConfigEffectConcurrencyHandlerPrefix + delimiter + "buffer_size"

	ConfigStoreTestPrefix          = ConfigPrefix + delimiter + "storetest"
	ConfigStoreTestTeardownTimeout = ConfigStoreTestPrefix + delimiter + "teardown_timeout"
)
