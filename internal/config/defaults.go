package config

// DefaultSeparators are tried in order by the recursive chunker; "" means raw character slicing.
var DefaultSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// ApplyDefaults sets default values for any zero values in cfg.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "localhost"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RequestTimeoutSecs == 0 {
		cfg.Server.RequestTimeoutSecs = 120
	}
	if cfg.Server.MaxUploadMB == 0 {
		cfg.Server.MaxUploadMB = 32
	}
	if cfg.Storage.DatabasePath == "" {
		cfg.Storage.DatabasePath = "/usr/local/var/manabu/data/db/manabu.db"
	}
	if cfg.Storage.SnapshotPath == "" {
		cfg.Storage.SnapshotPath = "/usr/local/var/manabu/data/corpus/corpus.bolt"
	}
	if cfg.Embedding.Provider == "" {
		cfg.Embedding.Provider = "onnx"
	}
	if cfg.Embedding.Provider == "onnx" && cfg.Embedding.ModelPath == "" {
		cfg.Embedding.ModelPath = "/usr/local/var/manabu/data/models/all-MiniLM-L6-v2.onnx"
	}
	if cfg.Embedding.Model == "" {
		cfg.Embedding.Model = "all-minilm"
	}
	if cfg.Embedding.Dimensions == 0 {
		cfg.Embedding.Dimensions = 384
	}
	if cfg.Embedding.MaxTokens == 0 {
		cfg.Embedding.MaxTokens = 256
	}
	if cfg.Embedding.CacheSize == 0 {
		cfg.Embedding.CacheSize = 10000
	}
	if cfg.Completion.Provider == "" {
		cfg.Completion.Provider = "openai"
	}
	if cfg.Completion.Model == "" {
		cfg.Completion.Model = "gpt-4o-mini"
	}
	if cfg.Completion.APIKeyEnv == "" && cfg.Completion.Provider == "openai" {
		cfg.Completion.APIKeyEnv = "OPENAI_API_KEY"
	}
	if cfg.Completion.TimeoutSecs == 0 {
		cfg.Completion.TimeoutSecs = 60
	}
	if cfg.Completion.AnswerMaxTokens == 0 {
		cfg.Completion.AnswerMaxTokens = 1000
	}
	if cfg.Completion.AnswerTemperature == 0 {
		cfg.Completion.AnswerTemperature = 0.3
	}
	if cfg.Completion.VerifyMaxTokens == 0 {
		cfg.Completion.VerifyMaxTokens = 10
	}
	if cfg.Completion.QuestionMaxTokens == 0 {
		cfg.Completion.QuestionMaxTokens = 2000
	}
	if cfg.Completion.QuestionTemperature == 0 {
		cfg.Completion.QuestionTemperature = 0.7
	}
	if len(cfg.RAG.Categories) == 0 {
		cfg.RAG.Categories = []string{"NEET", "JEE"}
	}
	if cfg.RAG.ChunkSize == 0 {
		cfg.RAG.ChunkSize = 500
	}
	if cfg.RAG.ChunkOverlap == 0 {
		cfg.RAG.ChunkOverlap = 50
	}
	if cfg.RAG.Separators == nil {
		cfg.RAG.Separators = append([]string(nil), DefaultSeparators...)
	}
	if cfg.RAG.TopK == 0 {
		cfg.RAG.TopK = 5
	}
	if cfg.RAG.QuestionTopK == 0 {
		cfg.RAG.QuestionTopK = 3
	}
	if cfg.RAG.PreviewLength == 0 {
		cfg.RAG.PreviewLength = 200
	}
	if cfg.Watch.Extensions == nil {
		cfg.Watch.Extensions = []string{".txt", ".md", ".pdf", ".docx", ".pptx", ".xlsx"}
	}
	// Recursive defaults to true when unset (nil).
	if len(cfg.Watch.Sources) > 0 && cfg.Watch.Recursive == nil {
		t := true
		cfg.Watch.Recursive = &t
	}
}
