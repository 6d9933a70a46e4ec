package core

import "prodigymun/pkg/domain"

type (
	Registration      = domain.Registration
	RegistrationInput = domain.RegistrationInput
	RegistrationStore = domain.RegistrationStore
	NaturalKey        = domain.NaturalKey
	ListFilter        = domain.ListFilter
	Stats             = domain.Stats
	Status            = domain.Status
	Committee         = domain.Committee
	Category          = domain.Category
)

const (
	StatusPending   = domain.StatusPending
	StatusConfirmed = domain.StatusConfirmed
	StatusRejected  = domain.StatusRejected
)
