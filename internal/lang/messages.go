package lang

var greetings = Table[string]{
	English: "Namaste! I am KisanMitra, your farming assistant. How can I help you today?",
	Hindi:   "नमस्ते! मैं किसानमित्र हूँ, आपका खेती सहायक। आज मैं आपकी कैसे मदद कर सकता हूँ?",
	Telugu:  "నమస్కారం! నేను కిసాన్‌మిత్ర, మీ వ్యవసాయ సహాయకుడిని. ఈ రోజు నేను మీకు ఎలా సహాయం చేయగలను?",
}

var errorReplies = Table[string]{
	English: "Sorry, I encountered an error. Please try again.",
	Hindi:   "क्षमा करें, कोई त्रुटि हुई। कृपया फिर से प्रयास करें।",
	Telugu:  "క్షమించండి, లోపం జరిగింది. దయచేసి మళ్ళీ ప్రయత్నించండి.",
}

var voiceUnsupported = Table[string]{
	English: "Speech recognition is not supported on this device.",
	Hindi:   "इस डिवाइस पर वॉइस इनपुट उपलब्ध नहीं है।",
	Telugu:  "ఈ పరికరంలో వాయిస్ ఇన్‌పుట్ అందుబాటులో లేదు.",
}

// Greeting is the assistant's opening line.
func Greeting(t Tag) string { return greetings.Get(t) }

// ErrorReply is shown as the assistant turn when the service gives no usable diagnostic.
func ErrorReply(t Tag) string { return errorReplies.Get(t) }

// VoiceUnsupported is the one-time notice shown when speech input is missing.
func VoiceUnsupported(t Tag) string { return voiceUnsupported.Get(t) }
