package common

// assetNames maps an AssetType to its display ticker. Adapted from the
// Product/productName registry pattern.
var assetNames = map[AssetType]string{
	Equities: "EQUITIES",
}

func (a AssetType) String() string {
	if name, ok := assetNames[a]; ok {
		return name
	}
	return "UNKNOWN"
}
