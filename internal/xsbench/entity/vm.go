package entity

import (
	"strconv"

	"github.com/google/uuid"
)

// vmNamespace 派生 VM UUID 的命名空间
var vmNamespace = uuid.MustParse("6e1a0f5c-0b6d-4f3e-9a57-5b0c2a1d8e42")

// VMUUID domain 对应的 VM 标识
// 同一个 domid 总是得到同一个 UUID，重复 make 共享同一条 /vm 记录
func VMUUID(domid int) string {
	return uuid.NewSHA1(vmNamespace, []byte(strconv.Itoa(domid))).String()
}

// VMName VM 名称
func VMName(domid int) string {
	return "bench-" + strconv.Itoa(domid)
}
