package model

import "time"

// ================ Config ================
type ConversationConfig struct {
	TTL    string `envconfig:"CONVERSATION_TTL" default:"24h"`
	Router struct {
		MaxTurns int `envconfig:"CONVERSATION_ROUTER_MAX_TURNS" default:"5"`
	}
}

type RouterModelConfig struct {
	Model       string        `envconfig:"ROUTER_MODEL" default:"gemini-2.5-flash-lite"`
	MaxTokens   int           `envconfig:"ROUTER_MAX_TOKENS" default:"1000"`
	Temperature float32       `envconfig:"ROUTER_TEMPERATURE" default:"0"`
	Timeout     time.Duration `envconfig:"ROUTER_TIMEOUT" default:"20s"`
}

type ResponseModelConfig struct {
	Model       string        `envconfig:"RESPONSE_MODEL" default:"gemini-2.5-flash"`
	MaxTokens   int           `envconfig:"RESPONSE_MAX_TOKENS" default:"2000"`
	Temperature float32       `envconfig:"RESPONSE_TEMPERATURE" default:"0.3"`
	Timeout     time.Duration `envconfig:"RESPONSE_TIMEOUT" default:"45s"`
}

type ResponsePromptConfig struct {
	AssistantName string `envconfig:"PROMPT_ASSISTANT_NAME" default:"Trợ lý Nông nghiệp"`
	Language      string `envconfig:"PROMPT_LANGUAGE" default:"Vietnamese"`
}

type RetrievalConfig struct {
	Index          string        `envconfig:"RETRIEVAL_INDEX" default:"agri_knowledge"`
	EmbeddingModel string        `envconfig:"RETRIEVAL_EMBEDDING_MODEL" default:"text-embedding-004"`
	TopK           int           `envconfig:"RETRIEVAL_TOP_K" default:"2"`
	ScoreThreshold float64       `envconfig:"RETRIEVAL_SCORE_THRESHOLD" default:"0"`
	MaxPassages    int           `envconfig:"RETRIEVAL_MAX_PASSAGES" default:"1"`
	WebMaxResults  int           `envconfig:"RETRIEVAL_WEB_MAX_RESULTS" default:"1"`
	SearchTimeout  time.Duration `envconfig:"RETRIEVAL_SEARCH_TIMEOUT" default:"10s"`
	ScoreTimeout   time.Duration `envconfig:"RETRIEVAL_SCORE_TIMEOUT" default:"10s"`
	WebTimeout     time.Duration `envconfig:"RETRIEVAL_WEB_TIMEOUT" default:"10s"`
	RerankerURL    string        `envconfig:"RETRIEVAL_RERANKER_URL"`
	BraveAPIKey    string        `envconfig:"BRAVE_API_KEY"`
	WebCountry     string        `envconfig:"RETRIEVAL_WEB_COUNTRY" default:"VN"`
	WebLanguage    string        `envconfig:"RETRIEVAL_WEB_LANGUAGE" default:"vi"`
}

type VisionConfig struct {
	ClassifierURL string        `envconfig:"VISION_CLASSIFIER_URL" default:"http://localhost:8500"`
	TempDir       string        `envconfig:"VISION_TEMP_DIR"`
	Timeout       time.Duration `envconfig:"VISION_TIMEOUT" default:"30s"`
}
