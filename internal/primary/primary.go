// Package primary implements the two record-value encodings used by the
// primary store: a trailing shard byte for the q-gram variant, and a
// leading "<shard>\t" plus tab-joined words for the word variant. The
// two stay genuinely distinct encodings per the Open Question decision
// recorded in DESIGN.md.
package primary

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrRecordHeader is returned when a primary value is too short or
// malformed to carry its shard trailer/prefix, matching the
// record_header error kind.
var ErrRecordHeader = errors.New("primary: corrupt record framing")

// MaxShards is the hard cap on index shards.
const MaxShards = 32

// EncodeQGramValue packs text and its assigned shard index (0-based,
// 0..31) as "text_bytes || shard_byte".
func EncodeQGramValue(text string, shard int) []byte {
	buf := make([]byte, 0, len(text)+1)
	buf = append(buf, text...)
	buf = append(buf, byte(shard))
	return buf
}

// DecodeQGramValue splits a q-gram primary value back into text and
// shard index.
func DecodeQGramValue(v []byte) (text string, shard int, err error) {
	if len(v) < 1 {
		return "", 0, ErrRecordHeader
	}
	shard = int(v[len(v)-1])
	if shard < 0 || shard >= MaxShards {
		return "", 0, ErrRecordHeader
	}
	return string(v[:len(v)-1]), shard, nil
}

// EncodeWordValue packs shard and text as "ascii_int(shard) || \"\\t\" ||
// text_words_joined_by_tabs". words must already be normalized/
// sanitized (no embedded tabs of their own).
func EncodeWordValue(shard int, words []string) []byte {
	var sb strings.Builder
	sb.WriteString(strconv.Itoa(shard))
	sb.WriteByte('\t')
	sb.WriteString(strings.Join(words, "\t"))
	return []byte(sb.String())
}

// DecodeWordValue splits a word-variant primary value back into shard
// index and the tab-separated words.
func DecodeWordValue(v []byte) (shard int, words []string, err error) {
	s := string(v)
	tab := strings.IndexByte(s, '\t')
	if tab < 0 {
		return 0, nil, ErrRecordHeader
	}
	shard, convErr := strconv.Atoi(s[:tab])
	if convErr != nil || shard < 0 || shard >= MaxShards {
		return 0, nil, ErrRecordHeader
	}
	rest := s[tab+1:]
	if rest == "" {
		return shard, nil, nil
	}
	return shard, strings.Split(rest, "\t"), nil
}

// ShardFileName renders the four-zero-padded-decimal-digit shard bucket
// name ("0001", "0002", ..., "0032") for shard index i (0-based).
func ShardFileName(i int) string {
	return fmt.Sprintf("%04d", i+1)
}
