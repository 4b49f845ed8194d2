package i18n

// Ключи длинных строк справки. Ключ совпадает с английским текстом.
const (
	KeyVersions  = "display versions in use for libraries and tools like web3 and solc"
	KeyIPFS      = "instantiated IPFS client configured to the current environment (available if ipfs is enabled)"
	KeyWeb3      = "instantiated web3 client configured to the current environment"
	KeyEmbarkJS  = "EmbarkJS static functions for Storage, Messages, Names, etc."
	KeyQuit      = "to immediately exit (alias: exit)"
	KeyContracts = "The web3 object and the interfaces for the deployed contracts and their methods are also available"
)

// translations хранит переводы по локалям; английская локаль переводит ключ сам в себя.
var translations = map[string]map[string]string{
	"pt-BR": {
		"help":                   "ajuda",
		"quit":                   "sair",
		"exit":                   "sair",
		"Welcome to Embark":      "Bem-vindo ao Embark",
		"possible commands are:": "comandos possíveis são:",
		"did you mean":           "você quis dizer",
		KeyVersions:              "exibe as versões em uso de bibliotecas e ferramentas como web3 e solc",
		KeyIPFS:                  "cliente IPFS instanciado e configurado para o ambiente atual (disponível se o ipfs estiver habilitado)",
		KeyWeb3:                  "cliente web3 instanciado e configurado para o ambiente atual",
		KeyEmbarkJS:              "funções estáticas do EmbarkJS para Storage, Messages, Names, etc.",
		KeyQuit:                  "para sair imediatamente (alias: exit)",
		KeyContracts:             "O objeto web3 e as interfaces dos contratos implantados e seus métodos também estão disponíveis",
	},
	"fr": {
		"help":                   "aide",
		"quit":                   "quitter",
		"exit":                   "sortir",
		"Welcome to Embark":      "Bienvenue dans Embark",
		"possible commands are:": "les commandes possibles sont :",
		"did you mean":           "vouliez-vous dire",
		KeyVersions:              "affiche les versions des bibliothèques et outils utilisés comme web3 et solc",
		KeyIPFS:                  "client IPFS instancié et configuré pour l'environnement courant (disponible si ipfs est activé)",
		KeyWeb3:                  "client web3 instancié et configuré pour l'environnement courant",
		KeyEmbarkJS:              "fonctions statiques EmbarkJS pour Storage, Messages, Names, etc.",
		KeyQuit:                  "pour quitter immédiatement (alias : exit)",
		KeyContracts:             "L'objet web3 et les interfaces des contrats déployés et leurs méthodes sont aussi disponibles",
	},
}
