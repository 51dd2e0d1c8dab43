package model

// TokenMetadata is the NEP-148 ft_metadata of a fungible token contract.
type TokenMetadata struct {
	ID            string  `json:"id" bson:"id"`
	Spec          string  `json:"spec" bson:"spec"`
	Name          string  `json:"name" bson:"name"`
	Symbol        string  `json:"symbol" bson:"symbol"`
	Icon          *string `json:"icon,omitempty" bson:"icon,omitempty"`
	Reference     *string `json:"reference,omitempty" bson:"reference,omitempty"`
	ReferenceHash *string `json:"reference_hash,omitempty" bson:"reference_hash,omitempty"`
	Decimals      uint8   `json:"decimals" bson:"decimals"`
}
