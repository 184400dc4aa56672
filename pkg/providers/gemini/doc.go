// Package gemini implements the Google Gemini provider adapter.
//
// The adapter targets the Generative Language API
// (POST /v1beta/models/{model}:generateContent) with the API key passed
// as a query parameter. Market calls request JSON output via
// responseMimeType "application/json".
//
// The completion text is the concatenation of the first candidate's
// parts. Usage arrives as promptTokenCount / candidatesTokenCount /
// totalTokenCount. A finishReason of SAFETY, RECITATION, or OTHER comes
// back as a providers.SafetyBlockError rather than a response.
package gemini
