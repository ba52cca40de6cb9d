package models

const (
	CollectionName        = "rpg_rules"
	CollectionDescription = "RPG rulebook text chunks"
	SentenceTerminators   = ".!?"
)

var (
	DefaultStopSequences = []string{"</s>", "<|eot_id|>"}

	SystemInstructions = "You are Arcane Scribe, a rules assistant. Answer ONLY from the provided context. " +
		"If the answer is not in the context, say you don't know. Provide citations with " +
		"source filename and page number for each statement when possible. Be concise."

	CitationInstruction = "Answer using only the context above and cite sources by their bracketed index, like [1], [2]."
)
