package entity

import "github.com/jjd27/xenstore-clients/pkg/xenstore"

// ReadOnlyTo dom0 所有，domid 只读
func ReadOnlyTo(domid int) xenstore.ACL {
	return xenstore.ACL{
		Owner: 0,
		Other: xenstore.AccessNone,
		Entries: []xenstore.ACLEntry{
			{DomainID: domid, Access: xenstore.AccessRead},
		},
	}
}

// OwnedBy domid 所有，其他 domain 不可访问
func OwnedBy(domid int) xenstore.ACL {
	return xenstore.ACL{Owner: domid, Other: xenstore.AccessNone}
}

// FrontendACL 前端属于前端 domain，后端 domain 可读
func FrontendACL(dev Device) xenstore.ACL {
	return xenstore.ACL{
		Owner: dev.Frontend.DomainID,
		Other: xenstore.AccessNone,
		Entries: []xenstore.ACLEntry{
			{DomainID: dev.Backend.DomainID, Access: xenstore.AccessRead},
		},
	}
}

// BackendACL 后端属于后端 domain，前端 domain 可读
func BackendACL(dev Device) xenstore.ACL {
	return xenstore.ACL{
		Owner: dev.Backend.DomainID,
		Other: xenstore.AccessNone,
		Entries: []xenstore.ACLEntry{
			{DomainID: dev.Frontend.DomainID, Access: xenstore.AccessRead},
		},
	}
}

// HotplugACL 只有后端 domain 可访问
func HotplugACL(dev Device) xenstore.ACL {
	return OwnedBy(dev.Backend.DomainID)
}
