package models

// EventType names a frame on the conversational wire protocol.
type EventType string

// Client -> server events.
const (
	EventStartChat            EventType = "start_chat"
	EventProvideClarification EventType = "provide_clarification"
	EventEndChat              EventType = "end_chat"
	EventPing                 EventType = "ping"
	EventInputAnalysis        EventType = "input_analysis"
)

// Server -> client events.
const (
	EventProcessingStarted        EventType = "processing_started"
	EventStreamResponse           EventType = "stream_response"
	EventClarificationRequested   EventType = "clarification_requested"
	EventClarificationReceived    EventType = "clarification_received"
	EventWebSearchStarted         EventType = "web_search_started"
	EventWebSearchResults         EventType = "web_search_results"
	EventTaskBlockSearchStarted   EventType = "task_block_search_started"
	EventTaskBlockSearchResults   EventType = "task_block_search_results"
	EventThinkApproach            EventType = "think_approach"
	EventFinalAnswer              EventType = "final_answer"
	EventWorkflowJSON             EventType = "opkey_workflow_json"
	EventValidatorProgress        EventType = "validator_progress_update"
	EventQueryRefinementStarted   EventType = "query_refinement_started"
	EventQueryRefinementCompleted EventType = "query_refinement_completed"
	EventReferencingStarted       EventType = "referencing_started"
	EventError                    EventType = "error"
	EventMaxConnectionsExceeded   EventType = "max_concurrent_connections_exceeded"
	EventChatEnded                EventType = "chat_ended"
	EventPong                     EventType = "pong"
	EventInputAnalysisResult      EventType = "input_analysis_result"
)

// Event is a single frame: an event name plus a JSON-serializable payload.
type Event struct {
	Event   EventType      `json:"event"`
	Payload map[string]any `json:"payload"`
}
