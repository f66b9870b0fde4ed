// Package prompts holds the task-specific instructions that frame a
// context bundle before it is sent to the analysis provider. The wording
// here is deliberately minimal; the assembled context does the real work.
package prompts

// Kind mirrors the provider task kinds. Kept as a plain string so this
// package has no dependency on the ai package.
type Kind string

const (
	CommitAnalysis Kind = "commit-analysis"
	PRReview       Kind = "pr-review"
	Overview       Kind = "overview"
	TrendNarrative Kind = "trend-narrative"
	Classify       Kind = "classify"
	Chat           Kind = "chat"
)

var instructions = map[Kind]string{
	CommitAnalysis: `You are a senior software architect performing a deep code review.
Using the previous commit as the baseline, produce a structured report in markdown:
1. Summary: intent and change type.
2. Key changes: what changed and why.
3. Code quality: readability, complexity, potential bugs, hardcoding - cite concrete examples, or state the code looks good.
4. Impact and value.`,

	PRReview: `You are a senior engineer reviewing a pull request.
Produce a markdown report: purpose summary, main changes and their effect, potential issues with concrete suggestions (or state none were found).`,

	Overview: `You are a technical writer. Summarize what this repository does, its main components, and its recent direction, in markdown.`,

	TrendNarrative: `You are a data analyst studying a repository's development activity.
From the commit category statistics and activity data, write a short markdown report: recent focus, observable patterns or hotspots, and overall activity level.`,

	Classify: `Classify each numbered commit message into exactly one of the categories listed in the context.
Respond with a JSON array of category strings, one per commit, in the same order. No other text.`,

	Chat: `You are an assistant with deep knowledge of this repository.
Answer the question using only the provided context. If the context is insufficient, say so plainly. Never invent an answer.`,
}

// Instruction returns the instruction block for a task kind, "" for an
// unknown kind. The data parameter is reserved for kinds that need
// interpolation; none currently do.
func Instruction(kind Kind, data any) string {
	return instructions[kind]
}
