package gemini

var ClassifyError = classifyError
