package observability

const (
	AttrAgentName       = "agent.name"
	AttrAgentModel      = "agent.model"
	AttrTaskID          = "task.id"
	AttrTaskStatus      = "task.status"
	AttrToolName        = "tool.name"
	AttrLLMModel        = "llm.model"
	AttrLLMTokensInput  = "llm.tokens.input"
	AttrLLMTokensOutput = "llm.tokens.output"
	AttrMemoryStore     = "memory.store"
	AttrErrorType       = "error.type"

	SpanAgentChat      = "agent.chat"
	SpanLLMRequest     = "agent.llm_request"
	SpanToolExecution  = "agent.tool_execution"
	SpanTaskExecution  = "orchestrator.task_execution"
	SpanMemoryLookup   = "memory.lookup"
	SpanMemoryPromote  = "memory.promote"
	SpanProcessRun     = "process.run"
	SpanQualityScoring = "memory.quality_scoring"

	DefaultServiceName = "maestro"
)
