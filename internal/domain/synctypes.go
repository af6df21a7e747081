package domain

// SyncRequestType is what a client asks for on the stream endpoint.
// The server walks the requested subset in the fixed order below so a child
// entity is never emitted before its parent exists on the client.
type SyncRequestType string

const (
	ReqAuthUsers         SyncRequestType = "AuthUsersV1"
	ReqUsers             SyncRequestType = "UsersV1"
	ReqPartners          SyncRequestType = "PartnersV1"
	ReqAssets            SyncRequestType = "AssetsV1"
	ReqStacks            SyncRequestType = "StacksV1"
	ReqPartnerAssets     SyncRequestType = "PartnerAssetsV1"
	ReqPartnerStacks     SyncRequestType = "PartnerStacksV1"
	ReqAlbumAssets       SyncRequestType = "AlbumAssetsV1"
	ReqAlbums            SyncRequestType = "AlbumsV1"
	ReqAlbumUsers        SyncRequestType = "AlbumUsersV1"
	ReqAlbumToAssets     SyncRequestType = "AlbumToAssetsV1"
	ReqAssetExifs        SyncRequestType = "AssetExifsV1"
	ReqAlbumAssetExifs   SyncRequestType = "AlbumAssetExifsV1"
	ReqPartnerAssetExifs SyncRequestType = "PartnerAssetExifsV1"
	ReqMemories          SyncRequestType = "MemoriesV1"
	ReqMemoryToAssets    SyncRequestType = "MemoryToAssetsV1"
	ReqPeople            SyncRequestType = "PeopleV1"
	ReqAssetFaces        SyncRequestType = "AssetFacesV1"
	ReqUserMetadata      SyncRequestType = "UserMetadataV1"
	ReqAssetMetadata     SyncRequestType = "AssetMetadataV1"
)

// SyncStreamOrder is the topological processing order. Parents before
// children, deletes before upserts within a type. The order is part of the
// wire contract; do not reorder.
var SyncStreamOrder = []SyncRequestType{
	ReqAuthUsers, ReqUsers, ReqPartners, ReqAssets, ReqStacks,
	ReqPartnerAssets, ReqPartnerStacks, ReqAlbumAssets, ReqAlbums,
	ReqAlbumUsers, ReqAlbumToAssets, ReqAssetExifs,
	ReqAlbumAssetExifs, ReqPartnerAssetExifs, ReqMemories,
	ReqMemoryToAssets, ReqPeople, ReqAssetFaces,
	ReqUserMetadata, ReqAssetMetadata,
}

// IsValid reports whether t is a known request type.
func (t SyncRequestType) IsValid() bool {
	for _, known := range SyncStreamOrder {
		if t == known {
			return true
		}
	}
	return false
}

// SyncEntityType is the `type` field on an emitted stream line, and the key
// under which a checkpoint is stored.
type SyncEntityType string

const (
	SyncAuthUserV1           SyncEntityType = "AuthUserV1"
	SyncUserV1               SyncEntityType = "UserV1"
	SyncUserDeleteV1         SyncEntityType = "UserDeleteV1"
	SyncPartnerV1            SyncEntityType = "PartnerV1"
	SyncPartnerDeleteV1      SyncEntityType = "PartnerDeleteV1"
	SyncAssetV1              SyncEntityType = "AssetV1"
	SyncAssetDeleteV1        SyncEntityType = "AssetDeleteV1"
	SyncStackV1              SyncEntityType = "StackV1"
	SyncStackDeleteV1        SyncEntityType = "StackDeleteV1"
	SyncAlbumV1              SyncEntityType = "AlbumV1"
	SyncAlbumDeleteV1        SyncEntityType = "AlbumDeleteV1"
	SyncAlbumUserV1          SyncEntityType = "AlbumUserV1"
	SyncAlbumUserDeleteV1    SyncEntityType = "AlbumUserDeleteV1"
	SyncAlbumToAssetV1       SyncEntityType = "AlbumToAssetV1"
	SyncAlbumToAssetDeleteV1 SyncEntityType = "AlbumToAssetDeleteV1"
	SyncAssetExifV1          SyncEntityType = "AssetExifV1"
	SyncMemoryV1             SyncEntityType = "MemoryV1"
	SyncMemoryDeleteV1       SyncEntityType = "MemoryDeleteV1"
	SyncMemoryToAssetV1      SyncEntityType = "MemoryToAssetV1"
	SyncMemoryToAssetDelV1   SyncEntityType = "MemoryToAssetDeleteV1"
	SyncUserMetadataV1       SyncEntityType = "UserMetadataV1"
	SyncUserMetadataDelV1    SyncEntityType = "UserMetadataDeleteV1"
	SyncAssetMetadataV1      SyncEntityType = "AssetMetadataV1"
	SyncAssetMetadataDelV1   SyncEntityType = "AssetMetadataDeleteV1"

	// Control types.
	SyncResetV1    SyncEntityType = "SyncResetV1"
	SyncCompleteV1 SyncEntityType = "SyncCompleteV1"
)

var knownEntityTypes = map[SyncEntityType]struct{}{
	SyncAuthUserV1: {}, SyncUserV1: {}, SyncUserDeleteV1: {},
	SyncPartnerV1: {}, SyncPartnerDeleteV1: {},
	SyncAssetV1: {}, SyncAssetDeleteV1: {},
	SyncStackV1: {}, SyncStackDeleteV1: {},
	SyncAlbumV1: {}, SyncAlbumDeleteV1: {},
	SyncAlbumUserV1: {}, SyncAlbumUserDeleteV1: {},
	SyncAlbumToAssetV1: {}, SyncAlbumToAssetDeleteV1: {},
	SyncAssetExifV1: {},
	SyncMemoryV1:    {}, SyncMemoryDeleteV1: {},
	SyncMemoryToAssetV1: {}, SyncMemoryToAssetDelV1: {},
	SyncUserMetadataV1: {}, SyncUserMetadataDelV1: {},
	SyncAssetMetadataV1: {}, SyncAssetMetadataDelV1: {},
	SyncResetV1: {}, SyncCompleteV1: {},
}

// IsValid reports whether t may appear as an ack type.
func (t SyncEntityType) IsValid() bool {
	_, ok := knownEntityTypes[t]
	return ok
}
