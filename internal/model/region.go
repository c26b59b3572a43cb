package model

type Region struct {
	Code string `json:"code"`
	Name string `json:"name"`
}
