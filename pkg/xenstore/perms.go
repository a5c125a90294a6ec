package xenstore

import (
	"fmt"
	"strconv"
)

// Access 访问权限
type Access int

const (
	AccessNone Access = iota
	AccessRead
	AccessWrite
	AccessRDWR
)

// String 返回线协议中使用的权限字母
func (a Access) String() string {
	switch a {
	case AccessRead:
		return "r"
	case AccessWrite:
		return "w"
	case AccessRDWR:
		return "b"
	default:
		return "n"
	}
}

func parseAccess(c byte) (Access, error) {
	switch c {
	case 'n':
		return AccessNone, nil
	case 'r':
		return AccessRead, nil
	case 'w':
		return AccessWrite, nil
	case 'b':
		return AccessRDWR, nil
	}
	return AccessNone, fmt.Errorf("unknown access %q", c)
}

// ACLEntry 单个域的访问权限
type ACLEntry struct {
	DomainID int    `json:"domid"`
	Access   Access `json:"access"`
}

// ACL 节点权限描述
// Owner 拥有完全权限，Other 是其他域的默认权限，Entries 为额外授权
type ACL struct {
	Owner   int        `json:"owner"`
	Other   Access     `json:"other"`
	Entries []ACLEntry `json:"entries,omitempty"`
}

// Encode 编码为线协议格式
// 第一项为 <other><owner>，其后每个授权一项 <access><domid>
func (a ACL) Encode() []string {
	parts := make([]string, 0, len(a.Entries)+1)
	parts = append(parts, a.Other.String()+strconv.Itoa(a.Owner))
	for _, e := range a.Entries {
		parts = append(parts, e.Access.String()+strconv.Itoa(e.DomainID))
	}
	return parts
}

// DecodeACL 解析线协议格式的权限列表
func DecodeACL(parts []string) (ACL, error) {
	if len(parts) == 0 {
		return ACL{}, fmt.Errorf("empty permission list")
	}

	var acl ACL
	for i, p := range parts {
		if len(p) < 2 {
			return ACL{}, fmt.Errorf("malformed permission %q", p)
		}
		access, err := parseAccess(p[0])
		if err != nil {
			return ACL{}, err
		}
		domid, err := strconv.Atoi(p[1:])
		if err != nil || domid < 0 {
			return ACL{}, fmt.Errorf("malformed permission %q", p)
		}
		if i == 0 {
			acl.Owner = domid
			acl.Other = access
			continue
		}
		acl.Entries = append(acl.Entries, ACLEntry{DomainID: domid, Access: access})
	}
	return acl, nil
}

// clone 深拷贝
func (a ACL) clone() ACL {
	out := ACL{Owner: a.Owner, Other: a.Other}
	if len(a.Entries) > 0 {
		out.Entries = append([]ACLEntry(nil), a.Entries...)
	}
	return out
}
