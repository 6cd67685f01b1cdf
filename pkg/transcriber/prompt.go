package transcriber

// PunctuationPrompt seeds the engine toward well-punctuated output for
// full-call transcription.
const PunctuationPrompt = "Esta es una conversación telefónica transcrita con puntuación completa, " +
	"incluyendo puntos, comas, signos de interrogación y exclamación donde corresponda. " +
	"La transcripción está bien formateada con oraciones completas."

// WindowPrompt is the short prompt used for independent segment-split
// windows, which carry no cross-window context.
const WindowPrompt = "Fragmento de una llamada telefónica en español."
