package core

type Capability string // Capabilities of services

const (
	CapabilityNotifier    Capability = "NOTIFIER"
	CapabilityAPI         Capability = "API"
	CapabilityCredentials Capability = "CREDENTIALS"
	CapabilitySecrets     Capability = "SECRETS"
)
