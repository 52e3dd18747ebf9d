package speech

import (
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hammamikhairi/secretkeeper/internal/domain"
	"github.com/hammamikhairi/secretkeeper/internal/logger"
)

// AzureOption configures the Azure TTS client.
type AzureOption func(*AzureClient)

// WithVoice sets the fallback TTS voice used when an utterance names none.
func WithVoice(voice string) AzureOption {
	return func(c *AzureClient) {
		c.voice = voice
	}
}

// WithAudioFormat sets the audio output format.
func WithAudioFormat(format string) AzureOption {
	return func(c *AzureClient) {
		c.format = format
	}
}

// WithHTTPTimeout sets the HTTP client timeout for TTS requests.
func WithHTTPTimeout(d time.Duration) AzureOption {
	return func(c *AzureClient) {
		c.httpClient.Timeout = d
	}
}

// WithEndpoint overrides the regional base URL. Used by tests.
func WithEndpoint(baseURL string) AzureOption {
	return func(c *AzureClient) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// AzureClient talks to the Azure Cognitive Services speech REST API.
type AzureClient struct {
	subscriptionKey string
	baseURL         string
	voice           string
	format          string
	httpClient      *http.Client
	log             *logger.Logger
}

// NewAzureClient creates an Azure TTS client with the given credentials.
func NewAzureClient(key, region string, log *logger.Logger, opts ...AzureOption) *AzureClient {
	c := &AzureClient{
		subscriptionKey: key,
		baseURL:         fmt.Sprintf("https://%s.tts.speech.microsoft.com", region),
		voice:           DefaultVoice,
		format:          DefaultAudioFormat,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		log: log.With("azure"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Voice returns the fallback voice name.
func (c *AzureClient) Voice() string { return c.voice }

// azureVoice is one entry of the voices/list response.
type azureVoice struct {
	ShortName string `json:"ShortName"`
	Locale    string `json:"Locale"`
	Gender    string `json:"Gender"`
}

// Voices lists the voices available in the region. Azure voices are all
// network voices, so LocalService is always false.
func (c *AzureClient) Voices(ctx context.Context) ([]domain.Voice, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/cognitiveservices/voices/list", nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("voices request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure voices error %d: %s", resp.StatusCode, string(body))
	}

	var list []azureVoice
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decoding voices: %w", err)
	}

	voices := make([]domain.Voice, 0, len(list))
	for _, v := range list {
		voices = append(voices, domain.Voice{
			Name:   v.ShortName,
			Lang:   v.Locale,
			Gender: strings.ToLower(v.Gender),
		})
	}
	c.log.Debug("listed %d voices", len(voices))
	return voices, nil
}

// Synthesize converts one utterance to speech audio data (WAV bytes).
func (c *AzureClient) Synthesize(ctx context.Context, u Utterance) ([]byte, error) {
	ssml, err := c.buildSSML(u)
	if err != nil {
		return nil, err
	}
	c.log.Debug("synthesizing %d chars with voice %s", len(u.Text), c.voiceFor(u))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/cognitiveservices/v1", strings.NewReader(ssml))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Ocp-Apim-Subscription-Key", c.subscriptionKey)
	req.Header.Set("Content-Type", "application/ssml+xml")
	req.Header.Set("X-Microsoft-OutputFormat", c.format)
	req.Header.Set("User-Agent", "SecretKeeper/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tts request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("azure tts error %d: %s", resp.StatusCode, string(body))
	}

	audioData, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading audio data: %w", err)
	}

	c.log.Debug("got %d bytes of audio", len(audioData))
	return audioData, nil
}

func (c *AzureClient) voiceFor(u Utterance) string {
	if u.Voice != "" {
		return u.Voice
	}
	return c.voice
}

// buildSSML renders the utterance as SSML. Rate, pitch and volume are
// multipliers around 1.0 and map to relative prosody percentages.
func (c *AzureClient) buildSSML(u Utterance) (string, error) {
	lang := u.Lang
	if lang == "" {
		lang = DefaultLang
	}
	text, err := escapeXML(u.Text)
	if err != nil {
		return "", fmt.Errorf("escaping text: %w", err)
	}
	langAttr, err := escapeXML(lang)
	if err != nil {
		return "", fmt.Errorf("escaping lang: %w", err)
	}
	voiceAttr, err := escapeXML(c.voiceFor(u))
	if err != nil {
		return "", fmt.Errorf("escaping voice: %w", err)
	}
	return fmt.Sprintf(
		`<speak version='1.0' xml:lang='%s'><voice xml:lang='%s' name='%s'><prosody rate='%s' pitch='%s' volume='%s'>%s</prosody></voice></speak>`,
		langAttr, langAttr, voiceAttr,
		relative(u.Rate), relative(u.Pitch), relative(u.Volume),
		text,
	), nil
}

// escapeXML escapes s for element text and quoted attribute values.
func escapeXML(s string) (string, error) {
	var b strings.Builder
	if err := xml.EscapeText(&b, []byte(s)); err != nil {
		return "", err
	}
	return b.String(), nil
}

// relative formats a multiplier as a signed percentage ("+0%", "-10%").
func relative(m float64) string {
	if m <= 0 {
		m = 1
	}
	return fmt.Sprintf("%+.0f%%", (m-1)*100)
}
