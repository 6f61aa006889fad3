// Package pci locates PCI functions in sysfs and gives register-level
// access to their memory BARs.
package pci
