package realtime

// Client events
const (
	EventSessionUpdate    = "session.update"
	EventInputAudioAppend = "input_audio_buffer.append"
	EventResponseCreate   = "response.create"
)

// Server events
const (
	EventInputTranscribed = "conversation.item.input_audio_transcription.completed"
	EventAudioTranscript  = "response.audio_transcript.done"
	EventTextDone         = "response.text.done"
	EventError            = "error"
)

type sessionUpdate struct {
	Type    string        `json:"type"`
	Session sessionConfig `json:"session"`
}

type sessionConfig struct {
	Modalities              []string             `json:"modalities"`
	Instructions            string               `json:"instructions,omitempty"`
	Voice                   string               `json:"voice,omitempty"`
	InputAudioFormat        string               `json:"input_audio_format"`
	OutputAudioFormat       string               `json:"output_audio_format"`
	InputAudioTranscription *transcriptionConfig `json:"input_audio_transcription,omitempty"`
	TurnDetection           *turnDetection       `json:"turn_detection,omitempty"`
}

type transcriptionConfig struct {
	Model string `json:"model"`
}

type turnDetection struct {
	Type string `json:"type"`
}

type audioAppend struct {
	Type  string `json:"type"`
	Audio string `json:"audio"`
}

type responseCreate struct {
	Type     string          `json:"type"`
	Response responseOptions `json:"response"`
}

type responseOptions struct {
	Modalities   []string `json:"modalities,omitempty"`
	Instructions string   `json:"instructions,omitempty"`
}

// serverEvent holds the fields of every server event this client reads.
type serverEvent struct {
	Type       string       `json:"type"`
	EventID    string       `json:"event_id"`
	ItemID     string       `json:"item_id"`
	Transcript string       `json:"transcript"`
	Text       string       `json:"text"`
	Error      *serverError `json:"error,omitempty"`
}

type serverError struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
