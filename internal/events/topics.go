package events

// Темы шины, которыми обмениваются консоль, исполнитель кода и генератор кода.
const (
	TopicExecuteCmd         = "console:executeCmd"
	TopicEval               = "runcode:eval"
	TopicRegister           = "runcode:register"
	TopicProviderCode       = "code-generator:embarkjs:provider-code"
	TopicCodeGeneratorReady = "code-generator-ready"
)
