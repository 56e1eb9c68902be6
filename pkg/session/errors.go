package session

import (
	"errors"

	"github.com/teslashibe/salon-voice/pkg/audioio"
	"github.com/teslashibe/salon-voice/pkg/conversation"
)

var (
	// ErrDisabled is returned by Start when no API key is configured.
	ErrDisabled = errors.New("session: disabled, no API key configured")

	// ErrStopped is returned by Start when Stop ran before the session
	// finished opening.
	ErrStopped = errors.New("session: stopped during start")

	// ErrOpenTimeout is recorded when the service does not acknowledge the
	// setup in time.
	ErrOpenTimeout = errors.New("session: timed out waiting for the service")

	// ErrUnsupportedAudio is returned by Start when the provider streams at
	// rates the local audio chain does not run at.
	ErrUnsupportedAudio = errors.New("session: provider audio format not supported")
)

// User-facing messages.
const (
	MessagePermissionDenied = "Permissão do microfone negada. Libere o acesso ao microfone e tente novamente."
	MessageNoMicrophone     = "Nenhum microfone encontrado. Conecte um microfone e tente novamente."
	MessageDisabled         = "Assistente de voz indisponível: chave de API não configurada."
	MessageGeneric          = "Algo deu errado. Tente novamente."
)

// Reason maps err to a one-line message for the user. It returns "" for a
// nil error.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, audioio.ErrPermissionDenied):
		return MessagePermissionDenied
	case errors.Is(err, audioio.ErrNoDevice):
		return MessageNoMicrophone
	case errors.Is(err, ErrDisabled), errors.Is(err, conversation.ErrMissingAPIKey):
		return MessageDisabled
	default:
		return MessageGeneric
	}
}
