package domain

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

// 地址长度限制（RFC 5321）
const (
	MaxLoginLength  = 64
	MaxDomainLength = 253
)

// loginForbidden 是本地部分不允许出现的字符：分隔符 ':'、'@' 与 SCAN 通配符。
// 空白与控制字符另行检查，其余字符（如 o'brien、_bob、#tag）都是合法的。
const loginForbidden = ":@*?[]\\"

// 域名验证（支持子域名）
var domainRegex = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?(\.[a-z0-9]([a-z0-9-]{0,61}[a-z0-9])?)*$`)

// MailboxIdentity 是一次性邮箱的身份，由 login 与 domain 组成。
//
// 通过 NewIdentity 或 ParseAddress 构造的值已完成小写化与去空白，
// 两个身份相等当且仅当规范化后的字段相等。
type MailboxIdentity struct {
	Login  string `json:"login"`
	Domain string `json:"domain"`
}

// MailboxKey 是由规范化身份派生的存储键，格式为 "domain:login"。
type MailboxKey string

// NewIdentity 规范化并校验 login/domain。
func NewIdentity(login, domain string) (MailboxIdentity, error) {
	id := MailboxIdentity{
		Login:  strings.ToLower(strings.TrimSpace(login)),
		Domain: strings.ToLower(strings.TrimSpace(domain)),
	}
	if err := id.validate(); err != nil {
		return MailboxIdentity{}, err
	}
	return id, nil
}

// DeriveKey 将 (login, domain) 映射为规范存储键。
//
// 纯函数：同一输入在任何进程中都得到同一个键，
// 因此客户端重新打开同一地址时会落到同一个邮箱。
func DeriveKey(login, domain string) (MailboxKey, error) {
	id, err := NewIdentity(login, domain)
	if err != nil {
		return "", err
	}
	return id.Key(), nil
}

// ParseAddress 解析 "login@domain" 形式的地址，允许外层的尖括号与空白。
func ParseAddress(address string) (MailboxIdentity, error) {
	addr := strings.TrimSpace(address)
	addr = strings.TrimSpace(strings.Trim(addr, "<>"))

	login, domain, ok := strings.Cut(addr, "@")
	if !ok || strings.Contains(domain, "@") {
		return MailboxIdentity{}, fmt.Errorf("%w: %q is not a login@domain address", ErrInvalidIdentity, address)
	}
	return NewIdentity(login, domain)
}

// Key 返回身份对应的存储键。
func (id MailboxIdentity) Key() MailboxKey {
	return MailboxKey(id.Domain + ":" + id.Login)
}

// Address 返回完整邮箱地址。
func (id MailboxIdentity) Address() string {
	return id.Login + "@" + id.Domain
}

func (id MailboxIdentity) String() string {
	return id.Address()
}

func (id MailboxIdentity) validate() error {
	switch {
	case id.Login == "" || id.Domain == "":
		return fmt.Errorf("%w: login and domain are required", ErrInvalidIdentity)
	case len(id.Login) > MaxLoginLength:
		return fmt.Errorf("%w: login longer than %d chars", ErrInvalidIdentity, MaxLoginLength)
	case len(id.Domain) > MaxDomainLength:
		return fmt.Errorf("%w: domain longer than %d chars", ErrInvalidIdentity, MaxDomainLength)
	case !validLogin(id.Login):
		return fmt.Errorf("%w: invalid login %q", ErrInvalidIdentity, id.Login)
	case !domainRegex.MatchString(id.Domain):
		return fmt.Errorf("%w: invalid domain %q", ErrInvalidIdentity, id.Domain)
	}
	return nil
}

func validLogin(login string) bool {
	if strings.ContainsAny(login, loginForbidden) {
		return false
	}
	for _, r := range login {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
