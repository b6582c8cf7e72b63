// Package prompt fills the fixed question-answering and quiz templates with
// retrieved document context. Templates are eino FString chat templates;
// chunk text is substituted verbatim and never escaped or filtered.
package prompt

// QAInstruction is the grounding instruction that opens every Q&A prompt.
// The "I don't know" fallback must reach the model verbatim.
const QAInstruction = `You are a helpful study assistant. Answer the question based strictly on the context below.
If the answer is not in the context, say "I don't know" and do not make it up.
Keep answers concise (max 3 sentences).`

// QuizInstruction is the examiner instruction that opens every quiz prompt.
const QuizInstruction = `You are a strict Professor. Based on the context provided, generate a quiz.
- Create exactly 3 Multiple Choice Questions, numbered Q1, Q2, Q3.
- Provide exactly 4 options for each, labelled A), B), C), D).
- After the options of each question, add a line "Correct Answer: <letter>".`

// QuizTopic replaces the user question in quiz prompts.
const QuizTopic = "Generate a quiz based on this text."

// Template bodies. Only {context}, {question} and {topic} are placeholders;
// no other braces may appear here.
const (
	qaPlain = QAInstruction + `

Context: {context}
Question: {question}
Answer:`

	quizPlain = QuizInstruction + `

Context: {context}
Topic: {topic}`

	// The zephyr variants wrap the same text in the chat markup expected by
	// zephyr-style instruction models served through raw text generation.
	qaZephyr = "<|system|>\n" + QAInstruction + `
</s>
<|user|>
Context: {context}
Question: {question}
</s>
<|assistant|>
`

	quizZephyr = "<|system|>\n" + QuizInstruction + `
</s>
<|user|>
Context: {context}
Topic: {topic}
</s>
<|assistant|>
`
)
