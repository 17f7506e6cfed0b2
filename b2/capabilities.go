package b2

// Capability is a permission granted to an application key.
type Capability string

const (
	CapListKeys                Capability = "listKeys"
	CapWriteKeys               Capability = "writeKeys"
	CapDeleteKeys              Capability = "deleteKeys"
	CapListBuckets             Capability = "listBuckets"
	CapListAllBucketNames      Capability = "listAllBucketNames"
	CapReadBuckets             Capability = "readBuckets"
	CapWriteBuckets            Capability = "writeBuckets"
	CapDeleteBuckets           Capability = "deleteBuckets"
	CapReadBucketRetentions    Capability = "readBucketRetentions"
	CapWriteBucketRetentions   Capability = "writeBucketRetentions"
	CapReadBucketEncryption    Capability = "readBucketEncryption"
	CapWriteBucketEncryption   Capability = "writeBucketEncryption"
	CapListFiles               Capability = "listFiles"
	CapReadFiles               Capability = "readFiles"
	CapShareFiles              Capability = "shareFiles"
	CapWriteFiles              Capability = "writeFiles"
	CapDeleteFiles             Capability = "deleteFiles"
	CapReadFileLegalHolds      Capability = "readFileLegalHolds"
	CapWriteFileLegalHolds     Capability = "writeFileLegalHolds"
	CapReadFileRetentions      Capability = "readFileRetentions"
	CapWriteFileRetentions     Capability = "writeFileRetentions"
	CapBypassGovernance        Capability = "bypassGovernance"
	CapReadBucketReplications  Capability = "readBucketReplications"
	CapWriteBucketReplications Capability = "writeBucketReplications"
)

// HasPermission reports whether the current session carries cap. It is a pure
// lookup; the service may still reject a call with 401/403.
func (c *Client) HasPermission(cap Capability) bool {
	session := c.Session()
	if session == nil {
		return false
	}

	for _, granted := range session.Allowed.Capabilities {
		if granted == cap {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether every capability in caps is granted.
func (c *Client) HasAllPermissions(caps ...Capability) bool {
	for _, cap := range caps {
		if !c.HasPermission(cap) {
			return false
		}
	}
	return true
}
