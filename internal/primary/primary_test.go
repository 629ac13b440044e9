package primary

import (
	"reflect"
	"testing"
)

func TestQGramRoundTrip(t *testing.T) {
	v := EncodeQGramValue("hello world", 3)
	text, shard, err := DecodeQGramValue(v)
	if err != nil || text != "hello world" || shard != 3 {
		t.Fatalf("got %q %d %v", text, shard, err)
	}
}

func TestWordRoundTrip(t *testing.T) {
	v := EncodeWordValue(31, []string{"red", "apple"})
	shard, words, err := DecodeWordValue(v)
	if err != nil || shard != 31 || !reflect.DeepEqual(words, []string{"red", "apple"}) {
		t.Fatalf("got %d %v %v", shard, words, err)
	}
}

func TestWordRoundTripEmpty(t *testing.T) {
	v := EncodeWordValue(0, nil)
	shard, words, err := DecodeWordValue(v)
	if err != nil || shard != 0 || words != nil {
		t.Fatalf("got %d %v %v", shard, words, err)
	}
}

func TestDecodeCorruptQGram(t *testing.T) {
	if _, _, err := DecodeQGramValue(nil); err != ErrRecordHeader {
		t.Fatalf("expected ErrRecordHeader, got %v", err)
	}
}

func TestDecodeCorruptWord(t *testing.T) {
	if _, _, err := DecodeWordValue([]byte("no-tab-here")); err != ErrRecordHeader {
		t.Fatalf("expected ErrRecordHeader, got %v", err)
	}
}

func TestShardFileName(t *testing.T) {
	if ShardFileName(0) != "0001" || ShardFileName(31) != "0032" {
		t.Fatalf("got %q %q", ShardFileName(0), ShardFileName(31))
	}
}
