// Package device provides the backend-neutral view of the host Bluetooth
// stack used by the poller.
//
// A Manager lists Adapters, an Adapter scans and lists Peripherals, and a
// Peripheral exposes its connection state, GATT services and characteristic
// reads. Backends live in sub-packages:
//   - bluez: BlueZ over the D-Bus system bus (Linux)
//   - go-ble: HCI and CoreBluetooth via github.com/go-ble/ble
package device
