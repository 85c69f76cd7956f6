package server

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"time"
)

// NonceTick 是 nonce 的时间片长度；校验时接受当前与上一个时间片。
const NonceTick = 12 * time.Hour

// NonceIssuer 为管理操作签发绑定 action 与操作者的一次性令牌。
type NonceIssuer struct {
	secret []byte
	now    func() time.Time
}

// NewNonceIssuer 以 secret 为 HMAC 密钥构造签发器。
func NewNonceIssuer(secret string, now func() time.Time) *NonceIssuer {
	if now == nil {
		now = time.Now
	}
	return &NonceIssuer{secret: []byte(secret), now: now}
}

// Issue 返回当前时间片内有效的 nonce。
func (n *NonceIssuer) Issue(action, actor string) string {
	return n.sign(action, actor, n.tick())
}

// Verify 检查 nonce 是否由当前或上一个时间片签发。
func (n *NonceIssuer) Verify(action, actor, nonce string) bool {
	if nonce == "" {
		return false
	}
	tick := n.tick()
	for _, t := range []int64{tick, tick - 1} {
		if hmac.Equal([]byte(nonce), []byte(n.sign(action, actor, t))) {
			return true
		}
	}
	return false
}

func (n *NonceIssuer) tick() int64 {
	return n.now().Unix() / int64(NonceTick/time.Second)
}

func (n *NonceIssuer) sign(action, actor string, tick int64) string {
	mac := hmac.New(sha256.New, n.secret)
	mac.Write([]byte(action))
	mac.Write([]byte{0})
	mac.Write([]byte(actor))
	mac.Write([]byte{0})
	mac.Write([]byte(strconv.FormatInt(tick, 10)))
	return hex.EncodeToString(mac.Sum(nil))[:20]
}
