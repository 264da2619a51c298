// Точка входа vaultkeeper — локального сервиса управления хранилищами заметок.
package main

func main() {
	execute()
}
