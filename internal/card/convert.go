package card

// ToV3 returns c as a CCv3 document. A *V3 is returned unchanged.
func ToV3(c Card) *V3 {
	switch v := c.(type) {
	case *V3:
		return v
	case *V2:
		return NewV3(V3Data{Data: v.Data})
	default:
		panic("card: unknown Card implementation")
	}
}

// ToV2 returns c as a CCv2 document. V3-only fields, assets included, are dropped.
func ToV2(c Card) *V2 {
	switch v := c.(type) {
	case *V2:
		return v
	case *V3:
		return NewV2(v.Data.Data)
	default:
		panic("card: unknown Card implementation")
	}
}

// Assets returns the descriptor list of a v3 card; v2 cards have none.
func Assets(c Card) []AssetDescriptor {
	if v, ok := c.(*V3); ok {
		return v.Data.Assets
	}
	return nil
}
