package notify

// provider implementations are split across dispatcher.go, email.go, sms.go,
// pushover.go and chat.go to keep each backend focused.
