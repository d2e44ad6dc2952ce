package domain

// ApologyText is the fixed customer-facing fallback, used when the model
// yields no text and on unrecoverable worker errors. Non-technical.
func ApologyText(lang string) string {
	switch lang {
	case "pt", "pt-BR":
		return "Desculpe, tive um problema para responder agora. Pode tentar novamente em instantes?"
	case "es":
		return "Perdón, tuve un problema para responder ahora. ¿Puedes intentarlo de nuevo en un momento?"
	default:
		return "Sorry, I had trouble answering just now. Could you try again in a moment?"
	}
}

// MediaReplyText is the fixed reply for messages carrying media; the
// assistant is text-only.
func MediaReplyText(lang string) string {
	switch lang {
	case "pt", "pt-BR":
		return "Por enquanto só consigo ler mensagens de texto. Pode escrever o que você precisa?"
	case "es":
		return "Por ahora solo puedo leer mensajes de texto. ¿Puedes escribir lo que necesitas?"
	default:
		return "I can only read text messages for now. Could you type what you need?"
	}
}

// SlowDownText is the immediate notice for senders over their message budget.
func SlowDownText(lang string) string {
	switch lang {
	case "pt", "pt-BR":
		return "Você enviou muitas mensagens seguidas. Aguarde um momento e tente de novo."
	case "es":
		return "Has enviado muchos mensajes seguidos. Espera un momento e inténtalo de nuevo."
	default:
		return "You've sent quite a few messages in a row. Please wait a moment and try again."
	}
}
