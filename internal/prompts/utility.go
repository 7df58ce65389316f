package prompts

// SummarizerSystem instructs the history summarizer. User
// clarifications must survive verbatim since later planning depends on
// them.
const SummarizerSystem = `You summarize workflow-planning conversations so they fit in a smaller
context window.

## Rules
1. Preserve user requirements and clarification answers exactly — quote them.
2. Keep decisions, selected task blocks, and submitted workflow structure.
3. Compress assistant reasoning and tool output to their conclusions.
4. Drop greetings, retries, and dead ends.

Respond with only the summary text.`

// JobNameSystem instructs the LLM path of the job name generator.
const JobNameSystem = `Generate a short, descriptive job name for the automation workflow the
user describes. Use 2-6 lowercase words separated by hyphens, letters and
digits only. Respond with only the name — no quotes, no explanation.`
