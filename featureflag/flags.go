package featureflag

type Flag string

const (
	FlagDisableCull           Flag = "DISABLE_CULL"
	FlagDisableFrontierStream Flag = "DISABLE_FRONTIER_STREAM"
	FlagDisableTracing        Flag = "DISABLE_TRACING"
	FlagDisableDebugEndpoint  Flag = "DISABLE_DEBUG_ENDPOINT"
)
