/**
 * 账本条目与哈希计算
 * @author: sun977
 * @date: 2025.11.04
 * @description: 条目哈希 = sha256(规范化 JSON {"index","payload","previousHash"})，时间戳不参与哈希
 */
package ledger

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// GenesisPreviousHash 创世条目的前驱哈希哨兵
const GenesisPreviousHash = "0"

// Entry 账本条目，写入后不可变
type Entry struct {
	Index        int             `json:"index"` // 从 1 开始
	Timestamp    time.Time       `json:"timestamp"`
	Payload      json.RawMessage `json:"payload"` // 规范化 JSON
	PreviousHash string          `json:"previous_hash"`
	Hash         string          `json:"hash"`
}

// clone 深拷贝，避免调用方改动内部 Payload
func (e Entry) clone() Entry {
	if e.Payload != nil {
		e.Payload = append(json.RawMessage(nil), e.Payload...)
	}
	return e
}

// Canonicalize 将任意值编码为规范化 JSON：对象键有序、数字原样保留、不做 HTML 转义
func Canonicalize(v interface{}) (json.RawMessage, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal payload: %w", err)
	}
	return canonicalBytes(raw)
}

// canonicalBytes 对已编码的 JSON 重新规范化
func canonicalBytes(raw []byte) (json.RawMessage, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic interface{}
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(generic); err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return json.RawMessage(bytes.TrimRight(buf.Bytes(), "\n")), nil
}

// ComputeHash 计算条目哈希（十六进制小写）
// 序列化形式固定为 {"index":N,"payload":<canonical>,"previousHash":"..."}，键已按字典序排列
func ComputeHash(index int, payload json.RawMessage, previousHash string) (string, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	canonical, err := canonicalBytes(payload)
	if err != nil {
		return "", err
	}
	prev, err := json.Marshal(previousHash)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	buf.WriteString(`{"index":`)
	buf.WriteString(strconv.Itoa(index))
	buf.WriteString(`,"payload":`)
	buf.Write(canonical)
	buf.WriteString(`,"previousHash":`)
	buf.Write(prev)
	buf.WriteByte('}')

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

// newEntry 构造并封存一个条目
func newEntry(index int, payload json.RawMessage, previousHash string, ts time.Time) (Entry, error) {
	if len(payload) == 0 {
		payload = json.RawMessage("null")
	}
	hash, err := ComputeHash(index, payload, previousHash)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Index:        index,
		Timestamp:    ts.UTC(),
		Payload:      payload,
		PreviousHash: previousHash,
		Hash:         hash,
	}, nil
}
