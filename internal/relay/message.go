package relay

// transcriptMessage and errorMessage are the only JSON bodies a client receives.
type transcriptMessage struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

type errorMessage struct {
	Error string `json:"error"`
}
