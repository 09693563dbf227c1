package model

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/siddharth-shringarpure/CloutChain/core"
)

// 默认词典，覆盖 meme coin 文案中常见的情绪词
var (
	defaultPositiveWords = []string{
		"moon", "bull", "bullish", "pump", "gem", "rocket", "win", "love",
		"great", "good", "best", "amazing", "hodl", "gains", "profit", "happy",
	}
	defaultNegativeWords = []string{
		"rug", "scam", "dump", "bear", "bearish", "crash", "rekt", "loss",
		"bad", "worst", "hate", "fail", "dead", "fraud", "sad", "sell",
	}
)

// LexiconSentiment 是本地词典情感分类器，实现 core.SentimentClassifier。
// 输出与远程三分类模型相同的标签：正面词多于负面词 → LABEL_2，少于 → LABEL_0，相等 → LABEL_1。
type LexiconSentiment struct {
	positive map[string]struct{}
	negative map[string]struct{}
}

// NewLexiconSentiment 创建词典分类器，词表为空时使用默认词典
func NewLexiconSentiment(positive, negative []string) *LexiconSentiment {
	if len(positive) == 0 {
		positive = defaultPositiveWords
	}
	if len(negative) == 0 {
		negative = defaultNegativeWords
	}
	return &LexiconSentiment{
		positive: toSet(positive),
		negative: toSet(negative),
	}
}

// lexiconFile 词典文件格式
type lexiconFile struct {
	Positive []string `yaml:"positive"`
	Negative []string `yaml:"negative"`
}

// LoadLexiconFromFile 从 YAML/JSON 文件加载词典：{"positive": [...], "negative": [...]}
func LoadLexiconFromFile(path string) (*LexiconSentiment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	var f lexiconFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse lexicon: %w", err)
	}
	return NewLexiconSentiment(f.Positive, f.Negative), nil
}

// ClassifySentiment 实现 core.SentimentClassifier
func (l *LexiconSentiment) ClassifySentiment(ctx context.Context, text string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	score := 0
	for _, word := range Tokenize(text) {
		if _, ok := l.positive[word]; ok {
			score++
		}
		if _, ok := l.negative[word]; ok {
			score--
		}
	}
	switch {
	case score > 0:
		return core.LabelPositive, nil
	case score < 0:
		return core.LabelNegative, nil
	default:
		return core.LabelNeutral, nil
	}
}

// Name 返回模型名称。
func (l *LexiconSentiment) Name() string {
	return "lexicon"
}

func toSet(words []string) map[string]struct{} {
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		for _, token := range Tokenize(w) {
			set[token] = struct{}{}
		}
	}
	return set
}

var _ core.SentimentClassifier = (*LexiconSentiment)(nil)
